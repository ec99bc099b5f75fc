// Package main is the entry point for modelform.
package main

func main() {
	Execute()
}
