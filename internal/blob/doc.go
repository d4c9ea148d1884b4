// Package blob stores job artifacts under slash-separated keys.
//
// Keys are relative paths such as "jobs/<job-key>/<output-name>". LocalFS
// maps them onto a directory tree and refuses keys that would escape its
// root. WithTimeout bounds every call of another Store.
package blob
