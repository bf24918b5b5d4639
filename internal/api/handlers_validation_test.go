package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/dockyard/internal/validation"
)

func TestValidateHost_Valid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(anonymous, http.MethodPost, "/api/v1/validate/host", `{"name":"web-01","hostname":"10.0.0.5"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[validation.ValidationResult](t, rec)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateHost_Invalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(anonymous, http.MethodPost, "/api/v1/validate/host", `{"hostname":"http://10.0.0.5","port":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	result := decode[validation.ValidationResult](t, rec)
	assert.False(t, result.Valid)

	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["hostname"])
	assert.True(t, fields["port"])
}

func TestValidateHost_DoesNotStore(t *testing.T) {
	env := newTestEnv(t)

	env.do(anonymous, http.MethodPost, "/api/v1/validate/host", `{"name":"web-01","hostname":"10.0.0.5"}`)

	hosts, err := env.store.ListHosts(false)
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestValidateContainer(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(anonymous, http.MethodPost, "/api/v1/validate/container", `{"image":"nginx:latest","ports":["80","53/udp"],"memory_mb":128}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[validation.ValidationResult](t, rec).Valid)

	rec = env.do(anonymous, http.MethodPost, "/api/v1/validate/container", `{"ports":["80/icmp"],"memory_mb":-1,"volumes":["data"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	result := decode[validation.ValidationResult](t, rec)
	assert.Len(t, result.Errors, 4)
}

func TestValidateRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(anonymous, http.MethodPost, "/api/v1/validate/host", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
