// Package api embeds the OpenAPI document served under /swagger.
package api

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte
