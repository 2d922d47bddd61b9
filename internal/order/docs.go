package order

import "github.com/swaggo/swag"

// SwaggerInfo describes the order API served under /swagger. Keep the
// template in step with the annotations on Handler.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Checkout Order Service API",
	Description:      "Creates orders, starts their checkout saga and exposes the stored saga events",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/order": {
            "post": {
                "description": "Persist a new order and publish its initial event to the start-saga topic",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Create an order",
                "parameters": [
                    {
                        "description": "Order lines",
                        "name": "order",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/order.CreateOrderRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Order"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/event": {
            "get": {
                "description": "Look up the latest stored event by orderId or transactionId; orderId wins when both are set",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Latest event of a saga",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "orderId", "in": "query"},
                    {"type": "string", "description": "Transaction ID", "name": "transactionId", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Event"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/event/all": {
            "get": {
                "description": "List stored saga events, newest first",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "List events",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Event"}}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "models.Product": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "unitValue": {"type": "number"}
            }
        },
        "models.OrderProduct": {
            "type": "object",
            "properties": {
                "product": {"$ref": "#/definitions/models.Product"},
                "quantity": {"type": "integer"}
            }
        },
        "models.Order": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "products": {"type": "array", "items": {"$ref": "#/definitions/models.OrderProduct"}},
                "createdAt": {"type": "string"},
                "transactionId": {"type": "string"},
                "totalAmount": {"type": "number"},
                "totalItems": {"type": "integer"}
            }
        },
        "models.History": {
            "type": "object",
            "properties": {
                "source": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "SUCCESS", "ROLLBACK_PENDING", "FAIL"]},
                "message": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "models.Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "transactionId": {"type": "string"},
                "orderId": {"type": "string"},
                "payload": {"$ref": "#/definitions/models.Order"},
                "source": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "SUCCESS", "ROLLBACK_PENDING", "FAIL"]},
                "eventHistory": {"type": "array", "items": {"$ref": "#/definitions/models.History"}},
                "createdAt": {"type": "string"}
            }
        },
        "order.CreateOrderRequest": {
            "type": "object",
            "required": ["products"],
            "properties": {
                "products": {"type": "array", "items": {"$ref": "#/definitions/models.OrderProduct"}}
            }
        }
    }
}`
