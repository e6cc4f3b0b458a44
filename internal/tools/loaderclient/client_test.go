package loaderclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 300, "data": data})
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": map[string]string{"code": code, "message": code}})
}

func newFakeLoaderAPI(t *testing.T) *httptest.Server {
	t.Helper()
	priv, err := security.GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubPEM, err := security.EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	const symmetric = "sym-key"
	seen := map[string]bool{}
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/loader/handshake", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"serverPublicKey": pubPEM, "challenge": "chal", "nonce": "hs-nonce", "expiresIn": 600})
	})
	mux.HandleFunc("/loader/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if err := security.VerifyChallenge(priv, body["signedChallenge"], "chal", body["deviceFingerprint"], body["nonce"]); err != nil {
			writeErr(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED")
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"sessionToken": "tok", "refreshToken": "ref", "symmetricKey": symmetric,
			"licenseInfo": map[string]any{"key": "AAAA-BBBB-CCCC-DDDD", "type": "LIFETIME", "status": "ACTIVE"},
		})
	})
	mux.HandleFunc("/loader/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionToken string `json:"sessionToken"`
			Nonce        string `json:"nonce"`
			Timestamp    int64  `json:"timestamp"`
			Signature    string `json:"signature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !security.Verify(security.RequestSigningInput(body.SessionToken, body.Nonce, body.Timestamp), body.Signature, symmetric) {
			writeErr(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED")
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[body.Nonce] {
			writeErr(w, http.StatusConflict, "REPLAY_DETECTED")
			return
		}
		seen[body.Nonce] = true
		writeData(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoaderLoginAndHeartbeat(t *testing.T) {
	srv := newFakeLoaderAPI(t)
	c := New(srv.URL + "/")
	ctx := context.Background()

	sess, err := c.LoaderLogin(ctx, "player", "password-123", "hwid-1")
	if err != nil {
		t.Fatalf("loader login: %v", err)
	}
	if sess.License.Key != "AAAA-BBBB-CCCC-DDDD" || sess.DeviceFingerprint != "hwid-1" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if err := c.Heartbeat(ctx, sess, ""); err != nil {
		t.Fatalf("heartbeat with fresh nonce: %v", err)
	}
	if err := c.Heartbeat(ctx, sess, "fixed"); err != nil {
		t.Fatalf("first fixed-nonce heartbeat: %v", err)
	}
	err = c.Heartbeat(ctx, sess, "fixed")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Code != "REPLAY_DETECTED" {
		t.Fatalf("expected replay APIError, got %v", err)
	}
}

func TestHeartbeatWithWrongKeyIsRejected(t *testing.T) {
	srv := newFakeLoaderAPI(t)
	c := New(srv.URL)
	err := c.Heartbeat(context.Background(), &Session{SessionToken: "tok", SymmetricKey: "wrong"}, "n1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
