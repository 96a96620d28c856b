package db

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeVector(t *testing.T) {
	assert.Equal(t, "[]", encodeVector(nil))
	assert.Equal(t, "[1]", encodeVector([]float32{1}))
	assert.Equal(t, "[0.5,-0.25,0]", encodeVector([]float32{0.5, -0.25, 0}))
}

func TestIsUnavailable(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	assert.True(t, IsUnavailable(opErr))
	assert.True(t, IsUnavailable(fmt.Errorf("query failed: %w", opErr)), "wrapped network errors count")
	assert.False(t, IsUnavailable(errors.New("duplicate key value")))
	assert.False(t, IsUnavailable(nil))
}
