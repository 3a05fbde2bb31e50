// Package config loads the operator-side configuration for portwatchctl.
//
// The file shares its layout with the server's config.yaml; only the
// `operator:` section is read here:
//
//	operator:
//	  server_url: "http://localhost:8080"   # REST API base URL
//	  grpc_endpoint: "localhost:50051"      # reservation service host:port
//	  name: "alice"                         # defaults to $USER
//	  timeout: 10s
//	  hold:
//	    renew_interval: 0s                  # 0 = half the lease duration
//	  auth:
//	    mode: apikey                        # apikey | mtls | none
//	    key_env: PORTWATCH_API_KEY
//
// Secrets are never stored in the file; KeyEnv names the environment variable
// that holds the key.
package config
