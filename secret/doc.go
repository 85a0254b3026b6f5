// Package secret resolves credential references in configuration values.
//
// A value of the form secretref:<provider>:<ref> is replaced by what the
// named provider returns; any other value is used as is. Two providers are
// built in:
//   - env:  secretref:env:WAREHOUSE_PASSWORD reads another variable
//   - file: secretref:file:/run/secrets/redis reads a mounted secret file
//
// ExpandEnvStrict expands ${VAR} references in configuration files and
// fails on unset variables.
package secret
