package storage

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestMapGCSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"object missing", storage.ErrObjectNotExist, ErrObjectNotFound},
		{"wrapped missing", fmt.Errorf("reader: %w", storage.ErrObjectNotExist), ErrObjectNotFound},
		{"precondition", &googleapi.Error{Code: http.StatusPreconditionFailed, Message: "conditionNotMet"}, ErrPreconditionFailed},
		{"404 api error", &googleapi.Error{Code: http.StatusNotFound}, ErrObjectNotFound},
		{"bucket missing", storage.ErrBucketNotExist, storage.ErrBucketNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(mapGCSError("b", tt.err), tt.want))
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, mapGCSError("b", other))
}

func TestPrefixer(t *testing.T) {
	p := prefixer("team")
	assert.Equal(t, "team/jobhunt.db", p.full("jobhunt.db"))
	assert.Equal(t, "team/locks/jobhunt.db.lock", p.full("/locks/jobhunt.db.lock"))
	assert.Equal(t, "jobhunt.db", p.rel("team/jobhunt.db"))
	assert.Equal(t, "team/strategies/", p.listPrefix("strategies/"))
	assert.Equal(t, "team/", p.listPrefix(""))

	empty := prefixer("")
	assert.Equal(t, "strategies/", empty.listPrefix("strategies/"))
	assert.Equal(t, "a/b", empty.full("a/b"))
}
