package api

import "net/http"

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.SignatureHeader))
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document describing every route.
func buildOpenAPIDoc(signatureHeader string) map[string]any {
	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Inbox",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/webhook": map[string]any{
				"post": map[string]any{
					"summary":  "Ingest a signed message delivery",
					"security": []any{map[string]any{"WebhookSignature": []any{}}},
					"requestBody": map[string]any{
						"required": true,
						"content":  jsonContent(ref("WebhookMessage")),
					},
					"responses": map[string]any{
						"200": jsonResponse("Stored or already stored", ref("Status")),
						"400": errorResponse("Malformed payload"),
						"401": errorResponse("Invalid signature"),
						"413": errorResponse("Body too large"),
						"503": errorResponse("Store unavailable"),
					},
				},
			},
			"/messages": map[string]any{
				"get": map[string]any{
					"summary": "List messages",
					"parameters": []any{
						queryParam("limit", "integer", "Page size, 0 to max_limit"),
						queryParam("offset", "integer", "Rows to skip"),
						queryParam("from", "string", "Exact sender"),
						queryParam("since", "string", "Lower bound on ts (RFC 3339)"),
						queryParam("q", "string", "Case-insensitive text substring"),
						queryParam("sort", "string", "received (default) or ts"),
					},
					"responses": map[string]any{
						"200": jsonResponse("A page of messages", ref("MessageList")),
						"400": errorResponse("Invalid query"),
						"503": errorResponse("Store unavailable"),
					},
				},
			},
			"/messages/{message_id}": map[string]any{
				"get": map[string]any{
					"summary": "Get one message",
					"parameters": []any{map[string]any{
						"name": "message_id", "in": "path", "required": true,
						"schema": map[string]any{"type": "string"},
					}},
					"responses": map[string]any{
						"200": jsonResponse("The message", ref("Message")),
						"404": errorResponse("Unknown message"),
					},
				},
			},
			"/stats": map[string]any{
				"get": map[string]any{
					"summary": "Corpus statistics",
					"responses": map[string]any{
						"200": jsonResponse("Statistics", ref("Stats")),
						"503": errorResponse("Store unavailable"),
					},
				},
			},
			"/health/live": map[string]any{
				"get": map[string]any{
					"summary":   "Liveness",
					"responses": map[string]any{"200": jsonResponse("Process is up", ref("Status"))},
				},
			},
			"/health/ready": map[string]any{
				"get": map[string]any{
					"summary": "Readiness",
					"responses": map[string]any{
						"200": jsonResponse("Ready to ingest", ref("Status")),
						"503": errorResponse("Not ready"),
					},
				},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"WebhookSignature": map[string]any{
					"type":        "apiKey",
					"in":          "header",
					"name":        signatureHeader,
					"description": "Lowercase hex HMAC-SHA256 of the raw body, optionally prefixed with sha256=",
				},
			},
			"schemas": map[string]any{
				"WebhookMessage": object([]string{"message_id", "from", "to", "ts", "text"}, map[string]any{
					"message_id": str(),
					"from":       map[string]any{"type": "string", "pattern": `^\+[1-9]\d{1,14}$`},
					"to":         map[string]any{"type": "string", "pattern": `^\+[1-9]\d{1,14}$`},
					"ts":         map[string]any{"type": "string", "format": "date-time"},
					"text":       str(),
				}),
				"Message": object(nil, map[string]any{
					"message_id":  str(),
					"from":        str(),
					"to":          str(),
					"ts":          timestamp(),
					"text":        str(),
					"received_at": timestamp(),
				}),
				"MessageList": object(nil, map[string]any{
					"data":   map[string]any{"type": "array", "items": ref("Message")},
					"total":  map[string]any{"type": "integer"},
					"limit":  map[string]any{"type": "integer"},
					"offset": map[string]any{"type": "integer"},
				}),
				"Stats": object(nil, map[string]any{
					"total_messages": map[string]any{"type": "integer"},
					"senders_count":  map[string]any{"type": "integer"},
					"messages_per_sender": map[string]any{"type": "array", "items": object(nil, map[string]any{
						"from":  str(),
						"count": map[string]any{"type": "integer"},
					})},
					"first_message_ts": nullable(timestamp()),
					"last_message_ts":  nullable(timestamp()),
				}),
				"Status": object(nil, map[string]any{"status": str()}),
				"Error":  object(nil, map[string]any{"detail": str()}),
			},
		},
	}
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

// timestampRendering documents formatTime. Stored times are instants, so a
// delivered ts is echoed in this form, not byte for byte.
const timestampRendering = "UTC RFC 3339 with the Z suffix. Fractional seconds drop trailing zeros and are omitted when zero, so a delivered 2025-01-15T10:00:00.500Z reads back as 2025-01-15T10:00:00.5Z and 10:00:00.000Z as 10:00:00Z."

func timestamp() map[string]any {
	return map[string]any{"type": "string", "format": "date-time", "description": timestampRendering}
}

func nullable(schema map[string]any) map[string]any {
	schema["type"] = []any{schema["type"], "null"}
	return schema
}

func str() map[string]any {
	return map[string]any{"type": "string"}
}

func object(required []string, props map[string]any) map[string]any {
	o := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func jsonContent(schema map[string]any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func jsonResponse(description string, schema map[string]any) map[string]any {
	return map[string]any{"description": description, "content": jsonContent(schema)}
}

func errorResponse(description string) map[string]any {
	return jsonResponse(description, ref("Error"))
}

func queryParam(name, typ, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"required":    false,
		"description": description,
		"schema":      map[string]any{"type": typ},
	}
}
