package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/admin-console/internal/admin/observability"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	logger, err := observability.NewLogger("debug")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = observability.NewLogger("bogus")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestFromContextDefaultsToNop(t *testing.T) {
	t.Parallel()

	require.NotNil(t, observability.FromContext(context.Background()))

	logger := zap.NewExample()
	ctx := observability.WithLogger(context.Background(), logger)
	require.Same(t, logger, observability.FromContext(ctx))
}

func TestRequestLoggerRecordsCompletion(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	router := chi.NewRouter()
	router.Use(observability.RequestLogger(zap.New(core)))
	router.Get("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		observability.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/login", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.Equal(t, 1, logs.FilterMessage("inside handler").Len())
	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	require.Equal(t, zapcore.WarnLevel, completed[0].Level)
	fields := completed[0].ContextMap()
	require.Equal(t, "/admin/login", fields["route"])
	require.EqualValues(t, http.StatusUnprocessableEntity, fields["status"])
	require.Equal(t, "GET", fields["method"])
}

func TestRecovererAnswers500(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	handler := observability.RequestLogger(zap.New(core))(observability.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestUsernameFieldStripsControlCharacters(t *testing.T) {
	t.Parallel()

	field := observability.Username("admin\n{\"level\":\"error\"}")
	require.Equal(t, "username", field.Key)
	require.Equal(t, `admin{"level":"error"}`, field.String)

	long := observability.Username(strings.Repeat("x", 100))
	require.Len(t, long.String, 64)
}
