package utils_test

import (
	"testing"

	"github.com/jrsteele09/wa-session-gateway/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestPtr(t *testing.T) {
	s := "hello"
	p := utils.Ptr(s)
	require.Equal(t, "hello", *p)

	*p = "changed"
	require.Equal(t, "hello", s)
}
