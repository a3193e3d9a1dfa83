// SPDX-License-Identifier: MIT
package validate

// Accepted values of the enumerated configuration fields, for OneOf.
var (
	LogLevels = []string{"debug", "info", "warn", "error"}
	Exporters = []string{"grpc", "http"}
)
