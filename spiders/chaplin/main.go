// Command chaplin crawls the archive.org Charlie Chaplin film listing.
package main

func main() {
	Execute()
}
