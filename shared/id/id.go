// Package id provides ID generation helpers used across services.
package id

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultLength = 21

const (
	PrefixConversation = "conv"
	PrefixOffer        = "off"
	PrefixProduct      = "prod"
	PrefixShop         = "shop"
	PrefixTurn         = "turn"
)

func New(prefix string) string {
	id, err := nanoid.New(DefaultLength)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

func NewConversation() string { return New(PrefixConversation) }
func NewOffer() string        { return New(PrefixOffer) }
func NewProduct() string      { return New(PrefixProduct) }
func NewShop() string         { return New(PrefixShop) }
func NewTurn() string         { return New(PrefixTurn) }
