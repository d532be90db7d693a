// Package output renders convergectl results as a table, JSON or YAML.
//
// Tables are derived from struct fields by reflection: the json tag
// names the column, `table:"-"` hides a field and `table:"wide"` shows
// it only with --wide.
package output
