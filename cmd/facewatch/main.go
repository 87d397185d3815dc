// Command facewatch runs live face detection on a camera feed and serves
// the annotated preview, session control and snapshots over HTTP.
package main

func main() {
	Execute()
}
