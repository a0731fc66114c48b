//go:build tools

package tools

// mockery generates the testify mocks under pkg/*/mocks from .mockery.yaml.
// Run: go run github.com/vektra/mockery/v2
import _ "github.com/vektra/mockery/v2"
