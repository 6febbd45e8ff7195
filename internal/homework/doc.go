// Package homework talks to the homework review status API and turns a
// review status into the chat message text.
package homework
