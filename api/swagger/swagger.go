package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Hostel Fee API",
        "description": "Hostel fee collection and expense tracking service",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Admin authentication"},
        {"name": "Students", "description": "Resident roster and fee status"},
        {"name": "Portal", "description": "Public student self-service"},
        {"name": "Expenses", "description": "Business expense bookkeeping"},
        {"name": "Settings", "description": "Hostel configuration"},
        {"name": "Notifications", "description": "Payment alerts"},
        {"name": "Payments", "description": "Simulated UPI payments"},
        {"name": "Admin", "description": "Operational endpoints"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Admin"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Admin login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the current session",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current admin",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List residents",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Students"],
                "summary": "Register a resident",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get one resident",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Students"],
                "summary": "Edit resident details",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Remove a resident",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/students/{id}/fee-status": {
            "patch": {
                "tags": ["Students"],
                "summary": "Record a fee status transition",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateFeeStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/portal/students/{mobile}": {
            "get": {
                "tags": ["Portal"],
                "summary": "Look up a resident by mobile number",
                "parameters": [{"name": "mobile", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/portal/students/{mobile}/fee-status": {
            "patch": {
                "tags": ["Portal"],
                "summary": "Resident self-reports a fee payment",
                "parameters": [
                    {"name": "mobile", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"paymentMode": {"type": "string", "enum": ["upi", "cash"]}}}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/expenses": {
            "get": {
                "tags": ["Expenses"],
                "summary": "List expenses",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Expenses"],
                "summary": "Record an expense",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExpenseRequest"}}
                ],
                "responses": {"201": {"description": "Created"}}
            },
            "delete": {
                "tags": ["Expenses"],
                "summary": "Delete every expense",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/expenses/{id}": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Fetch one expense",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Expenses"],
                "summary": "Edit an expense",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExpenseRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Expenses"],
                "summary": "Delete one expense",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/expenses/summary": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Cash-flow summary",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "month", "in": "query", "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/expenses/export": {
            "get": {
                "tags": ["Expenses"],
                "summary": "Download the expense log",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/settings": {
            "get": {
                "tags": ["Settings"],
                "summary": "Hostel settings",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Settings"],
                "summary": "Edit hostel settings",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSettingsRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List notifications newest first",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "unread", "in": "query", "type": "boolean"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications/{id}/read": {
            "patch": {
                "tags": ["Notifications"],
                "summary": "Mark one notification read",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications/read-all": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark every notification read",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/payments": {
            "get": {
                "tags": ["Payments"],
                "summary": "Payment attempt history",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Payments"],
                "summary": "Start a UPI payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"studentId": {"type": "string"}}}}
                ],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/admin/monthly-reset": {
            "post": {
                "tags": ["Admin"],
                "summary": "Run the monthly fee reset",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/check-monthly-reset": {
            "get": {
                "tags": ["Admin"],
                "summary": "Report whether a reset is due",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateStudentRequest": {
            "type": "object",
            "required": ["name", "mobile", "room", "joiningDate"],
            "properties": {
                "name": {"type": "string"},
                "mobile": {"type": "string"},
                "room": {"type": "string"},
                "joiningDate": {"type": "string"}
            }
        },
        "UpdateFeeStatusRequest": {
            "type": "object",
            "required": ["feeStatus", "updatedBy"],
            "properties": {
                "feeStatus": {"type": "string", "enum": ["pending", "paid"]},
                "paymentMode": {"type": "string", "enum": ["upi", "cash"]},
                "updatedBy": {"type": "string", "enum": ["student", "admin"]}
            }
        },
        "CreateExpenseRequest": {
            "type": "object",
            "required": ["category", "description", "date", "paymentMethod", "recipientName"],
            "properties": {
                "category": {"type": "string"},
                "description": {"type": "string"},
                "amount": {"type": "number"},
                "date": {"type": "string"},
                "paymentMethod": {"type": "string"},
                "recipientName": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "UpdateSettingsRequest": {
            "type": "object",
            "required": ["monthlyFee", "upiId", "hostelName"],
            "properties": {
                "monthlyFee": {"type": "number", "minimum": 100},
                "upiId": {"type": "string"},
                "hostelName": {"type": "string"},
                "enablePayNow": {"type": "boolean"}
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
