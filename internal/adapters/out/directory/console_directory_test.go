package directory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/logger"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

func TestConsoleDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != "svc" || password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/customers/c-1":
			_, _ = io.WriteString(w, `{"id":"c-1","name":"Ann Lee","email":"ann@example.com","pushToken":"ExponentPushToken[abc]"}`)
		case "/vehicles/v-1":
			_, _ = io.WriteString(w, `{"id":"v-1","make":"Volvo","model":"XC40","year":2025}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Directory.URL = server.URL + "/"
	cfg.Directory.Username = "svc"
	cfg.Directory.Password = "secret"
	d := NewConsoleDirectory(cfg, logger.NewWriterLogger(io.Discard, out.LogLevelError))

	customer, err := d.GetCustomer(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", customer.Email)
	assert.Equal(t, "ExponentPushToken[abc]", customer.PushToken)

	vehicle, err := d.GetVehicle(context.Background(), "v-1")
	require.NoError(t, err)
	assert.Equal(t, "Volvo XC40", vehicle.DisplayName())

	_, err = d.GetDealer(context.Background(), "missing")
	assert.Error(t, err)
}
