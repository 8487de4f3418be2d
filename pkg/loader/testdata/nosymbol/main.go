// Command nosymbol is a module that exports no frame entry point.
package main

func Update() {}

func main() {}
