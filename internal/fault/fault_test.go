package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(CodeNotFound, "skill not found: gh-list-repos")
	assert.Equal(t, "not_found: skill not found: gh-list-repos", plain.Error())

	wrapped := Wrap(CodeUpstream, "marketplace search failed", errors.New("dial tcp: timeout"))
	assert.Equal(t, "upstream: marketplace search failed: dial tcp: timeout", wrapped.Error())
	assert.Equal(t, "dial tcp: timeout", wrapped.Unwrap().Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInput, CodeOf(Input("missing intent")))
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("skill", "x")))

	// coded errors survive fmt wrapping
	deep := fmt.Errorf("handler: %w", New(CodeCaptureInFlight, "capture already running for example.com"))
	assert.Equal(t, CodeCaptureInFlight, CodeOf(deep))
	assert.True(t, Is(deep, CodeCaptureInFlight))
	assert.False(t, Is(deep, CodeUpstream))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "", MessageOf(nil))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
	assert.Equal(t, "missing intent", MessageOf(Input("missing intent")))

	wrapped := Wrap(CodeSchedule, "token refresh failed", errors.New("status 500"))
	assert.Equal(t, "token refresh failed: status 500", MessageOf(wrapped))
}
