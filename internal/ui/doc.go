// Package ui renders scan results for the terminal: ranked directory
// tables, snapshot diffs and a live progress view built on Bubbletea.
package ui
