// Package iotshadow implements conga.ShadowTransport on the AWS IoT device
// shadow data plane.
//
// Every request is signed with the conga.ShadowCredential passed to it; the
// transport itself holds no credentials. The classic shadow is addressed by
// an empty shadow name, named shadows (such as conga.ServiceShadow) by
// their name.
package iotshadow
