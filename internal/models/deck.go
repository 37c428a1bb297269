package models

import (
	"database/sql/driver"
	"encoding/json"
)

// CardQuantity 套牌中单张卡牌的数量
type CardQuantity struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Deck 注册套牌（主牌+备牌）
type Deck struct {
	Mainboard []CardQuantity `json:"mainboard"`
	Sideboard []CardQuantity `json:"sideboard,omitempty"`
}

// Value 实现 driver.Valuer 接口
func (d Deck) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan 实现 sql.Scanner 接口
func (d *Deck) Scan(value interface{}) error {
	if value == nil {
		*d = Deck{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, d)
}

// CardDelta 换备牌时单张卡牌的数量差
type CardDelta struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

// CardDeltas 一次换备牌产生的全部数量差
type CardDeltas []CardDelta

// Value 实现 driver.Valuer 接口
func (c CardDeltas) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan 实现 sql.Scanner 接口
func (c *CardDeltas) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, c)
}
