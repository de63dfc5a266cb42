package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/app"
	_ "github.com/odyssey-erp/sitebooks/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}
