// Package docs registers the Swagger document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/orders": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Start a create order saga",
                "parameters": [
                    {
                        "description": "Order",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/startorder.startOrderRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/startorder.StartOrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Error"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Error"}}
                }
            }
        },
        "/orders/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Order with its processed events",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/getorder.OrderHistoryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Error"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Error"}}
                }
            }
        },
        "/tasks/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["tasks"],
                "summary": "State of a consumed task",
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/taskstate.TaskState"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Error"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Error"}}
                }
            }
        }
    },
    "definitions": {
        "response.Error": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "startorder.startOrderRequest": {
            "type": "object",
            "required": ["buyer_id", "product_id"],
            "properties": {
                "order_id": {"type": "string"},
                "buyer_id": {"type": "string"},
                "seller_id": {"type": "string"},
                "product_id": {"type": "integer"},
                "product_amount": {"type": "string", "example": "23.39"},
                "job_description": {"type": "string"},
                "dimension": {"type": "string"}
            }
        },
        "startorder.StartOrderResponse": {
            "type": "object",
            "properties": {
                "order_id": {"type": "string"},
                "task_id": {"type": "string"}
            }
        },
        "getorder.OrderResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["init", "pending", "success", "rejected"]},
                "buyer_id": {"type": "string"},
                "seller_id": {"type": "string"},
                "product_id": {"type": "integer"},
                "total_amount": {"type": "string"},
                "job_description": {"type": "string"},
                "dimension": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "getorder.EventResponse": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "event": {"type": "string"},
                "next_event": {"type": "string"},
                "step": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "getorder.OrderHistoryResponse": {
            "type": "object",
            "properties": {
                "order": {"$ref": "#/definitions/getorder.OrderResponse"},
                "compensated": {"type": "boolean"},
                "events": {"type": "array", "items": {"$ref": "#/definitions/getorder.EventResponse"}}
            }
        },
        "taskstate.TaskState": {
            "type": "object",
            "properties": {
                "task_id": {"type": "string"},
                "event": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "STARTED", "RETRY", "SUCCESS", "FAILURE"]},
                "retries": {"type": "integer"},
                "error": {"type": "string"},
                "date_done": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Order Saga Worker API",
	Description:      "Starts create order sagas and exposes their ledger and task states.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
