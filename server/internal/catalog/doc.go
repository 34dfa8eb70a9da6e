// Package catalog holds the reports, metrics and sources the server knows
// about.
//
// The catalog is read from a YAML file:
//
//	reports:
//	  - title: Backend
//	    subjects:
//	      - name: API
//	        metrics:
//	          - name: Open violations
//	            type: violations
//	            target: "0"
//	            near_target: "10"
//	            sources:
//	              - type: sonarqube
//	                parameters:
//	                  url: https://sonar.example.org
//	                  component: api
//
// Fields left empty take their value from the data model: the supported
// scales, default scale, direction, addition operator and targets of the
// metric type. Reports, subjects, metrics and sources without a uuid get a
// name-based (SHA-1) UUID derived from their parent's UUID and their name or
// position, so the same file always yields the same UUIDs.
//
// Catalog is the concurrency-safe holder; Watch reloads the file on change
// and swaps the parsed Set atomically. A file that fails to load leaves the
// previous Set active.
package catalog
