// Package config provides configuration management for the Polaris
// gateway.
//
// Configuration is loaded from a YAML file, filled with documented
// defaults, and validated as a whole: every violated rule is reported,
// not just the first. Secret values are never stored in the file; the
// "env:NAME" reference form defers to the environment and is resolved
// by Build, not Load, so a config file can be validated on a machine
// that does not hold the secrets.
//
// Load produces a *Config; Build turns a validated *Config into the
// runtime objects the server wires together (routing topology, cluster
// status sources, API keys). Watcher reloads the file on change with
// debouncing, so a broken intermediate save never reaches the router.
//
// A minimal configuration file:
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	endpoints:
//	  - slug: "alpha-vllm-llama"
//	    cluster: "alpha"
//	    framework: "vllm"
//	    model: "llama"
//	    type: "openai_api"
//	    url: "http://alpha.internal:8000/v1"
//	    api_key: "env:ALPHA_API_KEY"
//
//	federated_models:
//	  - name: "llama"
//	    targets:
//	      - endpoint: "alpha-vllm-llama"
//
//	api_keys:
//	  - key: "env:POLARIS_KEY_ADA"
//	    username: "ada"
//	    email: "ada@example.com"
//	    groups: ["research"]
package config
