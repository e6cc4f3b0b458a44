package main

import (
	"os"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/loadersim"
)

func main() {
	if err := loadersim.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
