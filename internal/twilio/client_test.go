package twilio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twclient "github.com/twilio/twilio-go/client"

	"papas-bot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendPostsMessage(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "+14155238886"}, testLogger(), metrics.Registry("papas_test"))
	require.NoError(t, c.Send(context.Background(), "whatsapp:+56911111111", "¡Hola!"))

	assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", gotPath)
	assert.Equal(t, "AC1", gotUser)
	assert.Equal(t, "tok", gotPass)
	assert.Equal(t, "whatsapp:+56911111111", gotForm["To"])
	assert.Equal(t, "whatsapp:+14155238886", gotForm["From"])
	assert.Equal(t, "¡Hola!", gotForm["Body"])
}

func TestSendClassifiesErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		unauthorized bool
		wantCode     int
	}{
		{name: "bad credentials", status: http.StatusUnauthorized, body: `{"code":20003,"message":"Authenticate","status":401}`, unauthorized: true, wantCode: 20003},
		{name: "forbidden", status: http.StatusForbidden, body: `{"code":20003,"message":"Forbidden","status":403}`, unauthorized: true, wantCode: 20003},
		{name: "invalid recipient", status: http.StatusBadRequest, body: `{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`, wantCode: 21211},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+1"}, testLogger(), metrics.Registry("papas_test"))
			err := c.Send(context.Background(), "whatsapp:+56911111111", "hola")
			require.Error(t, err)
			assert.Equal(t, tt.unauthorized, errors.Is(err, ErrUnauthorized))

			var restErr *twclient.TwilioRestError
			require.ErrorAs(t, err, &restErr)
			assert.Equal(t, tt.status, restErr.Status)
			assert.Equal(t, tt.wantCode, restErr.Code)
		})
	}
}

func TestSendUndecodableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+1"}, testLogger(), nil)
	err := c.Send(context.Background(), "whatsapp:+56911111111", "hola")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestSendHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Config{BaseURL: "http://127.0.0.1:1", AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+1"}, testLogger(), nil)
	assert.ErrorIs(t, c.Send(ctx, "whatsapp:+56911111111", "hola"), context.Canceled)
}

func TestWithChannel(t *testing.T) {
	assert.Equal(t, "whatsapp:+569", withChannel("+569"))
	assert.Equal(t, "whatsapp:+569", withChannel("whatsapp:+569"))
	assert.Equal(t, "", withChannel(" "))
}
