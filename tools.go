//go:build tools

// Package livechat tracks tool dependencies invoked through go generate.
package livechat

import (
	_ "go.uber.org/mock/mockgen"
)
