package aerr_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

func TestIsMatchesByCode(t *testing.T) {
	err := aerr.PermissionDenied("budget exhausted for peer %s", "p1")
	assert.True(t, errors.Is(err, aerr.PermissionDenied("")))
	assert.False(t, errors.Is(err, aerr.Timeout("")))
}

func TestWrapPreservesCause(t *testing.T) {
	err := aerr.Wrap(aerr.CodeStorage, io.ErrUnexpectedEOF, "read op log")
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, aerr.CodeStorage, aerr.CodeOf(err))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, aerr.CodeInternal, aerr.CodeOf(fmt.Errorf("plain")))
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := aerr.Serialization("bad envelope")
	outer := fmt.Errorf("receive: %w", inner)
	assert.True(t, aerr.IsCode(outer, aerr.CodeSerialization))
	assert.False(t, aerr.IsCode(outer, aerr.CodeNetwork))
}

func TestUnknownOperationMessage(t *testing.T) {
	err := aerr.UnknownOperation("crypto", "frobnicate")
	assert.Contains(t, err.Error(), "frobnicate")
	assert.Contains(t, err.Error(), "crypto")
}
