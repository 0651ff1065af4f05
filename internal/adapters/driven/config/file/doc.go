// Package file provides the TOML configuration store kept under ~/.lectern.
package file
