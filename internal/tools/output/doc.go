// Package output prepares cluster objects and text for tool results.
//
// Sanitize is applied to every object a tool returns. It masks the values
// of Secret data and stringData, drops metadata.managedFields and the
// kubectl last-applied-configuration annotation, and never modifies its
// input:
//
//	items := output.SanitizeList(list.Items)
//
// CapText bounds free text such as container logs at MaxResultBytes.
package output
