// Package hostapp is a small stand-in for the closed application patchwork
// targets: a media viewer that formats proxied image URLs, a pinch-zoom
// controller with its own scale limit and an image decoder that picks a
// downsampling factor.
//
// Class and method identifiers mirror an obfuscated build. Every patchable
// routine is declared through the host package and called through its
// CallSite, so plugins can resolve and intercept it.
package hostapp
