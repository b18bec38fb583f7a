package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Quillstage API",
        "description": "Review and publication workflow engine for authored content",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Resources", "description": "Draft authoring and listings"},
        {"name": "Reviews", "description": "Review workflow transitions"},
        {"name": "Comments", "description": "Reviewer feedback"},
        {"name": "Policies", "description": "Per-organization review policy administration"},
        {"name": "Exports", "description": "Review history exports"},
        {"name": "Metrics", "description": "Operational metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Log in with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources": {
            "get": {
                "tags": ["Resources"],
                "summary": "List resources visible to the caller",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "author", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Resources"],
                "summary": "Create a draft resource",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateResourceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}": {
            "get": {
                "tags": ["Resources"],
                "summary": "Get resource detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Resources"],
                "summary": "Edit a draft resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateResourceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Resource no longer editable"}
                }
            },
            "delete": {
                "tags": ["Resources"],
                "summary": "Soft-delete a resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/resources/{id}/submit": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Submit a draft for review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/resources/{id}/resubmit": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Return a changes-requested resource to review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/review/start": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Start reviewing a resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Stage role mismatch"},
                    "409": {"description": "Review already started"}
                }
            }
        },
        "/resources/{id}/review/approve": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Approve a resource under review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Concurrency conflict, retry"}
                }
            }
        },
        "/resources/{id}/review/request-changes": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Request changes on a resource under review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/review/reject": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Reject a resource under review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Type is not rejectable"}
                }
            }
        },
        "/resources/{id}/review/reject-and-report": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Reject a resource and flag it for moderation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/reviews": {
            "get": {
                "tags": ["Reviews"],
                "summary": "List review verdicts for a resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/reviewers": {
            "get": {
                "tags": ["Reviews"],
                "summary": "List reviewers engaged with a resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/system": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Aggregate system metrics (admin only)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/reviews/mine": {
            "get": {
                "tags": ["Reviews"],
                "summary": "List the caller's review engagements",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/comments": {
            "get": {
                "tags": ["Comments"],
                "summary": "List review comments on a resource",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/comments/{id}/resolve": {
            "post": {
                "tags": ["Comments"],
                "summary": "Mark a review comment as addressed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Resolved"}
                }
            }
        },
        "/policies": {
            "get": {
                "tags": ["Policies"],
                "summary": "List review policies for the caller's organization",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Policies"],
                "summary": "Create or replace a review policy",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertPolicyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/policies/{type}": {
            "get": {
                "tags": ["Policies"],
                "summary": "Get the effective policy for a resource type",
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Policies"],
                "summary": "Remove a policy override",
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/resources/{id}/export": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export a resource's review history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "description": "csv or pdf"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a generated export by signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateResourceRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "title": {"type": "string"},
                "payload": {"type": "object"}
            },
            "required": ["type", "title"]
        },
        "UpdateResourceRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "payload": {"type": "object"}
            }
        },
        "ReviewActionRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"},
                "comments": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ReviewCommentInput"}
                }
            }
        },
        "ReviewCommentInput": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "context": {"type": "string"},
                "page": {"type": "integer"}
            },
            "required": ["text"]
        },
        "UpsertPolicyRequest": {
            "type": "object",
            "properties": {
                "resourceType": {"type": "string"},
                "reviewRequired": {"type": "boolean"},
                "reviewType": {"type": "string", "enum": ["SEQUENTIAL", "PARALLEL"]},
                "minApproval": {"type": "integer"},
                "rejectable": {"type": "boolean"},
                "stages": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/StageInput"}
                }
            },
            "required": ["resourceType", "reviewType"]
        },
        "StageInput": {
            "type": "object",
            "properties": {
                "role": {"type": "string"},
                "level": {"type": "integer"}
            },
            "required": ["role", "level"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
