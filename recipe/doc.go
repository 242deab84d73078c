// Package recipe parses pipeline recipes: YAML documents holding the data
// source, export target, executor switches and the ordered process list.
//
//	dataset_path: ./data/in.jsonl
//	export_path: ./data/out
//	np: 4
//	text_keys: text
//	process:
//	  - trim_whitespace_mapper:
//	  - range_filter:
//	      field: score
//	      min: 0.6
package recipe
