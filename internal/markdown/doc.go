// Package markdown renders model output as HTML safe to embed in the chat page.
package markdown
