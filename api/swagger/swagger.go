// Package swagger registers the OpenAPI document served at /docs.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Gradebook API",
        "description": "Role based gradebook: rosters, weighted quarterly grades, dashboards and grade sheet exports.",
        "version": "1.0.0"
    },
    "basePath": "{{.BasePath}}",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Login, token refresh and password changes"},
        {"name": "Users", "description": "Account management"},
        {"name": "Registrations", "description": "Self-service signup and admin review"},
        {"name": "Roster", "description": "Enrollments and teacher assignments"},
        {"name": "Gradebooks", "description": "Weighted categories, tasks and scores"},
        {"name": "Grades", "description": "Computed quarterly and overall grades"},
        {"name": "Dashboard", "description": "Role scoped summaries"},
        {"name": "Reports", "description": "Asynchronous CSV/PDF exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"], "summary": "Login",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Credentials"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "401": {"$ref": "#/responses/Error"}, "403": {"$ref": "#/responses/Error"}}
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"], "summary": "Rotate refresh token",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "401": {"$ref": "#/responses/Error"}}
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"], "summary": "Revoke refresh token", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}],
                "responses": {"204": {"description": "Logged out"}}
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Auth"], "summary": "Change own password", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PasswordChange"}}],
                "responses": {"204": {"description": "Changed"}, "400": {"$ref": "#/responses/Error"}, "403": {"$ref": "#/responses/Error"}}
            }
        },
        "/auth/me": {
            "get": {"tags": ["Auth"], "summary": "Current user", "security": [{"BearerAuth": []}], "responses": {"200": {"$ref": "#/responses/OK"}}}
        },
        "/users": {
            "get": {
                "tags": ["Users"], "summary": "List users", "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"},
                    {"name": "role", "in": "query", "type": "string", "enum": ["STUDENT", "TEACHER", "ADMIN", "SUPERADMIN"]},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"$ref": "#/responses/OK"}, "403": {"$ref": "#/responses/Error"}}
            },
            "post": {
                "tags": ["Users"], "summary": "Create user", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}],
                "responses": {"201": {"$ref": "#/responses/OK"}, "403": {"$ref": "#/responses/Error"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"], "summary": "Get user", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "404": {"$ref": "#/responses/Error"}}
            },
            "put": {
                "tags": ["Users"], "summary": "Update user", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateUserRequest"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "403": {"$ref": "#/responses/Error"}}
            },
            "delete": {
                "tags": ["Users"], "summary": "Deactivate user", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"204": {"description": "Deactivated"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/registrations": {
            "post": {
                "tags": ["Registrations"], "summary": "Register as student or teacher",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}],
                "responses": {"201": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}}
            },
            "get": {
                "tags": ["Registrations"], "summary": "List registrations", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "status", "in": "query", "type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/registrations/{id}/approve": {
            "post": {
                "tags": ["Registrations"], "summary": "Approve registration", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewRequest"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/registrations/{id}/reject": {
            "post": {
                "tags": ["Registrations"], "summary": "Reject registration", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewRequest"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/classes/{id}/enrollments": {
            "post": {
                "tags": ["Roster"], "summary": "Enroll student", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}],
                "responses": {"201": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/enrollments/{id}": {
            "delete": {
                "tags": ["Roster"], "summary": "Withdraw enrollment", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"204": {"description": "Withdrawn"}}
            }
        },
        "/classes/{id}/roster": {
            "get": {
                "tags": ["Roster"], "summary": "Class roster", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "termId", "in": "query", "type": "string", "required": true}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/classes/{id}/subjects/{subjectId}/teacher": {
            "post": {
                "tags": ["Roster"], "summary": "Assign teacher", "security": [{"BearerAuth": []}],
                "parameters": [
                    {"$ref": "#/parameters/ID"},
                    {"name": "subjectId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignTeacherRequest"}}
                ],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/gradebooks": {
            "post": {
                "tags": ["Gradebooks"], "summary": "Create gradebook", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGradebookRequest"}}],
                "responses": {"201": {"$ref": "#/responses/OK"}, "422": {"$ref": "#/responses/Error"}}
            },
            "get": {
                "tags": ["Gradebooks"], "summary": "List gradebooks", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "classId", "in": "query", "type": "string"}, {"name": "termId", "in": "query", "type": "string"}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/gradebooks/{id}": {
            "get": {
                "tags": ["Gradebooks"], "summary": "Get gradebook", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/gradebooks/{id}/categories": {
            "put": {
                "tags": ["Gradebooks"], "summary": "Replace categories", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateCategoriesRequest"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}, "422": {"$ref": "#/responses/Error"}}
            }
        },
        "/gradebooks/{id}/tasks": {
            "post": {
                "tags": ["Gradebooks"], "summary": "Add task", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTaskRequest"}}],
                "responses": {"201": {"$ref": "#/responses/OK"}, "422": {"$ref": "#/responses/Error"}}
            },
            "get": {
                "tags": ["Gradebooks"], "summary": "List tasks", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "quarter", "in": "query", "type": "integer"}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/gradebooks/{id}/tasks/{taskId}": {
            "delete": {
                "tags": ["Gradebooks"], "summary": "Delete task", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "taskId", "in": "path", "type": "string", "required": true}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/gradebooks/{id}/scores": {
            "post": {
                "tags": ["Gradebooks"], "summary": "Record scores", "description": "A null points_earned clears the score. Out of range values are clamped with a SCORE_CLAMPED warning.", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordScoresRequest"}}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/gradebooks/{id}/finalize": {
            "post": {
                "tags": ["Gradebooks"], "summary": "Finalize gradebook", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/gradebooks/{id}/roster": {
            "get": {
                "tags": ["Grades"], "summary": "Class grade roster", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/gradebooks/{id}/students/{enrollmentId}": {
            "get": {
                "tags": ["Grades"], "summary": "Student subject record", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "enrollmentId", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "403": {"$ref": "#/responses/Error"}}
            }
        },
        "/students/{id}/report-card": {
            "get": {
                "tags": ["Grades"], "summary": "Report card", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}, {"name": "termId", "in": "query", "type": "string", "required": true}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/dashboard": {
            "get": {"tags": ["Dashboard"], "summary": "Role dashboard", "security": [{"BearerAuth": []}], "responses": {"200": {"$ref": "#/responses/OK"}}}
        },
        "/reports": {
            "post": {
                "tags": ["Reports"], "summary": "Request export", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReportRequest"}}],
                "responses": {"202": {"$ref": "#/responses/OK"}}
            },
            "get": {
                "tags": ["Reports"], "summary": "List own exports", "security": [{"BearerAuth": []}],
                "parameters": [{"name": "limit", "in": "query", "type": "integer"}],
                "responses": {"200": {"$ref": "#/responses/OK"}}
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"], "summary": "Export status", "security": [{"BearerAuth": []}],
                "parameters": [{"$ref": "#/parameters/ID"}],
                "responses": {"200": {"$ref": "#/responses/OK"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Reports"], "summary": "Download export",
                "parameters": [{"name": "token", "in": "path", "type": "string", "required": true}],
                "produces": ["text/csv", "application/pdf"],
                "responses": {"200": {"description": "File"}, "403": {"$ref": "#/responses/Error"}}
            }
        }
    },
    "parameters": {
        "ID": {"name": "id", "in": "path", "type": "string", "required": true}
    },
    "responses": {
        "OK": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
        "Error": {"description": "Error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
    },
    "definitions": {
        "Credentials": {
            "type": "object", "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "RefreshRequest": {
            "type": "object", "required": ["refresh_token"],
            "properties": {"refresh_token": {"type": "string"}}
        },
        "PasswordChange": {
            "type": "object", "required": ["current_password", "new_password"],
            "properties": {"current_password": {"type": "string"}, "new_password": {"type": "string", "minLength": 8, "maxLength": 72}}
        },
        "CreateUserRequest": {
            "type": "object", "required": ["email", "full_name", "role", "password"],
            "properties": {
                "email": {"type": "string"}, "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["STUDENT", "TEACHER", "ADMIN", "SUPERADMIN"]},
                "active": {"type": "boolean"}, "password": {"type": "string", "minLength": 8}
            }
        },
        "UpdateUserRequest": {
            "type": "object", "required": ["full_name", "role"],
            "properties": {"full_name": {"type": "string"}, "role": {"type": "string"}, "active": {"type": "boolean"}}
        },
        "RegisterRequest": {
            "type": "object", "required": ["email", "full_name", "password", "role"],
            "properties": {
                "email": {"type": "string"}, "full_name": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "role": {"type": "string", "enum": ["STUDENT", "TEACHER"]}
            }
        },
        "ReviewRequest": {"type": "object", "properties": {"note": {"type": "string", "maxLength": 500}}},
        "EnrollRequest": {
            "type": "object", "required": ["student_id", "term_id"],
            "properties": {"student_id": {"type": "string"}, "term_id": {"type": "string"}}
        },
        "AssignTeacherRequest": {
            "type": "object", "required": ["teacher_id"],
            "properties": {"teacher_id": {"type": "string"}}
        },
        "CategoryInput": {
            "type": "object", "required": ["code", "label", "weight", "kind"],
            "properties": {
                "id": {"type": "string"}, "code": {"type": "string"}, "label": {"type": "string"},
                "weight": {"type": "number", "minimum": 0, "maximum": 1},
                "kind": {"type": "string", "enum": ["REGULAR", "QUARTERLY_EXAM"]}
            }
        },
        "CreateGradebookRequest": {
            "type": "object", "required": ["class_id", "subject_id", "term_id", "categories"],
            "properties": {
                "class_id": {"type": "string"}, "subject_id": {"type": "string"}, "term_id": {"type": "string"},
                "quarter_count": {"type": "integer", "minimum": 1, "maximum": 6},
                "passing_grade": {"type": "number"},
                "categories": {"type": "array", "items": {"$ref": "#/definitions/CategoryInput"}}
            }
        },
        "UpdateCategoriesRequest": {
            "type": "object", "required": ["categories"],
            "properties": {"categories": {"type": "array", "items": {"$ref": "#/definitions/CategoryInput"}}}
        },
        "CreateTaskRequest": {
            "type": "object", "required": ["category_id", "quarter", "label", "points_possible"],
            "properties": {
                "category_id": {"type": "string"}, "quarter": {"type": "integer", "minimum": 1},
                "label": {"type": "string"}, "points_possible": {"type": "number", "exclusiveMinimum": true, "minimum": 0}
            }
        },
        "ScoreEntry": {
            "type": "object", "required": ["task_id", "enrollment_id"],
            "properties": {
                "task_id": {"type": "string"}, "enrollment_id": {"type": "string"},
                "points_earned": {"type": "number", "x-nullable": true}
            }
        },
        "RecordScoresRequest": {
            "type": "object", "required": ["scores"],
            "properties": {"scores": {"type": "array", "items": {"$ref": "#/definitions/ScoreEntry"}}}
        },
        "ReportRequest": {
            "type": "object", "required": ["type", "format"],
            "properties": {
                "type": {"type": "string", "enum": ["grade_sheet", "report_card"]},
                "gradebookId": {"type": "string"}, "studentId": {"type": "string"}, "termId": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "status": {"type": "integer"}}
        },
        "Pagination": {
            "type": "object",
            "properties": {"page": {"type": "integer"}, "page_size": {"type": "integer"}, "total_count": {"type": "integer"}}
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

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "SMA Gradebook API",
	Description:      "Role based gradebook: rosters, weighted quarterly grades, dashboards and grade sheet exports.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
