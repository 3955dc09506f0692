//go:build toolscript

package main

func multiply(executionParams string, a float64, b float64) float64 {
	return a * b
}
