// Package upload streams files to the backend over the tus 1.0 resumable
// upload protocol, using the go-tus client. The caller creates the session
// through the api client and hands the resulting upload URL to an Uploader.
package upload
