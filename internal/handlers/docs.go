package handlers

import "net/http"

const apiTitle = "Hawaii Climate API"

// jsonArray wraps an item schema in a 200 response returning a JSON array
func jsonArray(description string, items interface{}) map[string]interface{} {
	return map[string]interface{}{
		"200": map[string]interface{}{
			"description": description,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{
						"type":  "array",
						"items": items,
					},
				},
			},
		},
		"500": map[string]interface{}{
			"description": "Dataset query failed",
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]string{"$ref": "#/components/schemas/Error"},
				},
			},
		},
	}
}

func dateParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string", "example": "2017-08-01"},
	}
}

// openAPIDocument describes every route registered by ClimateHandler
func openAPIDocument() map[string]interface{} {
	summary := map[string]string{"$ref": "#/components/schemas/TemperatureSummary"}

	return map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       apiTitle,
			"description": "Read-only queries over the Hawaii weather station dataset",
			"version":     "1.0.0",
		},
		"paths": map[string]interface{}{
			routePrecipitation: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Precipitation for the last year of data",
					"description": "One single-key object per measurement dated after the window start, in date order. Dates may repeat.",
					"responses": jsonArray("Precipitation by date", map[string]interface{}{
						"type":                 "object",
						"additionalProperties": map[string]interface{}{"type": "number", "nullable": true},
					}),
				},
			},
			routeStations: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Station names",
					"responses": jsonArray("Every station name", map[string]string{"type": "string"}),
				},
			},
			routeTobs: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Temperature observations for the active station",
					"description": "Each object maps the observation date to tobs and the station id to the station name.",
					"responses": jsonArray("Observations in date order", map[string]interface{}{
						"type":                 "object",
						"additionalProperties": map[string]interface{}{"oneOf": []map[string]string{{"type": "number"}, {"type": "string"}}},
					}),
				},
			},
			routeSummaryFrom: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Daily temperature summary from a start date",
					"description": "Dates are compared as YYYY-MM-DD strings and are not validated.",
					"parameters":  []map[string]interface{}{dateParam("start_date", "Inclusive start date")},
					"responses":   jsonArray("One summary per date", summary),
				},
			},
			routeSummaryRange: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Daily temperature summary between two dates",
					"description": "Both bounds are inclusive. A start after the end returns an empty array.",
					"parameters": []map[string]interface{}{
						dateParam("start_date", "Inclusive start date"),
						dateParam("end_date", "Inclusive end date"),
					},
					"responses": jsonArray("One summary per date", summary),
				},
			},
			routeHealth: map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Dataset reachable"},
						"503": map[string]string{"description": "Dataset unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Prometheus metrics",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"TemperatureSummary": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"Date":             map[string]string{"type": "string"},
						"Low  Temperature": map[string]string{"type": "number"},
						"Avg. Temperature": map[string]string{"type": "number"},
						"High Temperature": map[string]string{"type": "number"},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}
}

// OpenAPISpec handles GET /api/docs/openapi.json
func (h *ClimateHandler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, r, openAPIDocument(), http.StatusOK)
}
