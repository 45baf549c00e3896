package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Chronalive Timetable API",
        "description": "Schedule resolution, weekly overrides and substitution management",
        "version": "0.9.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Schedule", "description": "Effective schedule resolution and slot edits"},
        {"name": "Attendance", "description": "Teacher attendance"},
        {"name": "Substitutions", "description": "Substitute discovery and assignment"},
        {"name": "Changes", "description": "Timetable change approval workflow"},
        {"name": "Structure", "description": "Timetable structure"},
        {"name": "Teachers", "description": "Teacher roster management"},
        {"name": "Generator", "description": "Bulk timetable generation"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/classes/{id}/effective-schedule": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Resolve the effective schedule for a class on a date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Non-working day or bad date"},
                    "404": {"description": "No active structure"}
                }
            }
        },
        "/timetable/assign": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Assign a teacher to a slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflicting assignment"}
                }
            }
        },
        "/timetable/slot": {
            "delete": {
                "tags": ["Schedule"],
                "summary": "Clear a slot for one week",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DeleteSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/set-as-global": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Promote a week's overrides into the global schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WeekRequest"}}
                ],
                "responses": {
                    "204": {"description": "Promoted"},
                    "423": {"description": "Schedule frozen"}
                }
            }
        },
        "/classes/{id}/copy-from-global": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Seed a week's overrides from the global schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WeekRequest"}}
                ],
                "responses": {
                    "204": {"description": "Copied"},
                    "423": {"description": "Schedule frozen"}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records for a date",
                "parameters": [
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark a teacher's attendance",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/substitutions/candidates": {
            "get": {
                "tags": ["Substitutions"],
                "summary": "Rank substitute candidates for a slot",
                "parameters": [
                    {"name": "classId", "in": "query", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "period", "in": "query", "required": true, "type": "integer"},
                    {"name": "subjectId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Slot is a break"}
                }
            }
        },
        "/substitutions": {
            "post": {
                "tags": ["Substitutions"],
                "summary": "Assign a substitute to a slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignSubstituteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already covered"}
                }
            }
        },
        "/substitutions/{id}/confirm": {
            "post": {
                "tags": ["Substitutions"],
                "summary": "Confirm an auto-assigned substitution",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/substitutions/{id}/reject": {
            "post": {
                "tags": ["Substitutions"],
                "summary": "Reject an auto-assigned substitution",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/changes": {
            "get": {
                "tags": ["Changes"],
                "summary": "List timetable changes",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "entryKey", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Changes"],
                "summary": "Propose a timetable change",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProposeChangeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/changes/{id}/approve": {
            "post": {
                "tags": ["Changes"],
                "summary": "Approve a pending change",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Change already reviewed"}
                }
            }
        },
        "/changes/{id}/reject": {
            "post": {
                "tags": ["Changes"],
                "summary": "Reject a pending change",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Change already reviewed"}
                }
            }
        },
        "/structure": {
            "get": {
                "tags": ["Structure"],
                "summary": "Fetch the active timetable structure",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Structure"],
                "summary": "Replace the active timetable structure",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStructureRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/freeze-status": {
            "get": {
                "tags": ["Structure"],
                "summary": "Report whether the schedule is frozen",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Structure"],
                "summary": "Toggle the schedule freeze",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FreezeStatus"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List teachers",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "subjectId", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Teachers"],
                "summary": "Create teacher",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TeacherProfileRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Fetch one teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Teachers"],
                "summary": "Update teacher profile",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TeacherProfileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/generate": {
            "post": {
                "tags": ["Generator"],
                "summary": "Generate a timetable proposal for a class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/generate/{id}/commit": {
            "post": {
                "tags": ["Generator"],
                "summary": "Commit a generated proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Committed"},
                    "409": {"description": "Proposal has conflicts"},
                    "423": {"description": "Schedule frozen"}
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
        "AssignSlotRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"},
                "teacher_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "room": {"type": "string"},
                "scope": {"type": "string", "enum": ["weekly", "global_with_approval"]}
            },
            "required": ["class_id", "date", "period", "scope"]
        },
        "DeleteSlotRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"}
            },
            "required": ["class_id", "date", "period"]
        },
        "WeekRequest": {
            "type": "object",
            "properties": {
                "week_start": {"type": "string", "format": "date"}
            },
            "required": ["week_start"]
        },
        "MarkAttendanceRequest": {
            "type": "object",
            "properties": {
                "teacher_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "status": {"type": "string", "enum": ["present", "absent", "late"]},
                "reason": {"type": "string"}
            },
            "required": ["teacher_id", "date", "status"]
        },
        "AssignSubstituteRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"},
                "substitute_teacher_id": {"type": "string"}
            },
            "required": ["class_id", "date", "period", "substitute_teacher_id"]
        },
        "ProposeChangeRequest": {
            "type": "object",
            "properties": {
                "entry_key": {"type": "string"},
                "week_start": {"type": "string", "format": "date"},
                "new_teacher_id": {"type": "string"},
                "change_type": {"type": "string", "enum": ["substitution", "reassignment"]}
            },
            "required": ["entry_key", "week_start"]
        },
        "UpdateStructureRequest": {
            "type": "object",
            "properties": {
                "working_days": {"type": "array", "items": {"type": "string"}},
                "time_slots": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "period": {"type": "integer"},
                            "start_time": {"type": "string"},
                            "end_time": {"type": "string"},
                            "is_break": {"type": "boolean"}
                        }
                    }
                }
            },
            "required": ["working_days", "time_slots"]
        },
        "FreezeStatus": {
            "type": "object",
            "properties": {
                "frozen": {"type": "boolean"}
            },
            "required": ["frozen"]
        },
        "TeacherProfileRequest": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "subject_ids": {"type": "array", "items": {"type": "string"}},
                "unavailable": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "day": {"type": "string"},
                            "periods": {"type": "string"}
                        }
                    }
                },
                "substitute_priority": {"type": "integer"},
                "max_load_per_day": {"type": "integer"},
                "max_load_per_week": {"type": "integer"},
                "active": {"type": "boolean"}
            },
            "required": ["full_name", "email"]
        },
        "GenerateRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "subject_loads": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "subject_id": {"type": "string"},
                            "teacher_id": {"type": "string"},
                            "weekly_count": {"type": "integer"},
                            "difficulty": {"type": "integer"},
                            "preferred_periods": {"type": "array", "items": {"type": "integer"}}
                        }
                    }
                }
            },
            "required": ["class_id", "subject_loads"]
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
