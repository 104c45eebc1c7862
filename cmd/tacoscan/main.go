// Package main is the entry point for tacoscan.
package main

func main() {
	Execute()
}
