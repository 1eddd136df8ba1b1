// Package definition loads declarative machine definitions from YAML and
// binds them to a states.Registry.
//
// A definition file lists machines, their states and the actions to run on
// enter, exit, each loop iteration and on every change:
//
//	start: ["Idle"]
//	machines:
//	  - id: ""                  # the main machine
//	    states:
//	      - id: Idle
//	        enter: [{log: "idle"}]
//	        loop:  [{after: 3s, goto: Done}]
//	      - id: Done
//	        enter: [{sleep: 100ms}, {log: "done"}]
//
// Each action does exactly one of log, publish, goto or sleep. after gates an
// action on how long the state has been current, which turns a loop action
// into a timeout transition.
//
// An unqualified goto inside a named machine targets that machine; a
// qualified selector ("pump.on") is routed through the registry.
package definition
