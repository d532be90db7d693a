// Package connection builds the admin API client used by convergectl.
package connection
