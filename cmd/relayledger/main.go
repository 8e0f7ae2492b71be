// Package main is the entry point for the relayledger CLI.
package main

func main() {
	Execute()
}
