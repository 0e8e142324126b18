package mongodb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type priced struct {
	Cost decimal.Decimal `bson:"cost"`
}

func TestDecimalCodec_StoresDecimal128(t *testing.T) {
	reg := NewRegistry()

	data, err := bson.MarshalWithRegistry(reg, priced{Cost: decimal.RequireFromString("12.345")})
	require.NoError(t, err)

	raw := bson.Raw(data)
	assert.Equal(t, bsontype.Decimal128, raw.Lookup("cost").Type)

	var out priced
	require.NoError(t, bson.UnmarshalWithRegistry(reg, data, &out))
	assert.True(t, decimal.RequireFromString("12.345").Equal(out.Cost))
}

func TestDecimalCodec_ReadsLegacyValues(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name string
		doc  bson.M
		want string
	}{
		{"Double", bson.M{"cost": 2.5}, "2.5"},
		{"Int32", bson.M{"cost": int32(7)}, "7"},
		{"Int64", bson.M{"cost": int64(9)}, "9"},
		{"String", bson.M{"cost": "1.10"}, "1.1"},
		{"Null", bson.M{"cost": nil}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := bson.Marshal(tt.doc)
			require.NoError(t, err)

			var out priced
			require.NoError(t, bson.UnmarshalWithRegistry(reg, data, &out))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(out.Cost), "got %s", out.Cost)
		})
	}
}

func TestDecimalCodec_RejectsOtherTypes(t *testing.T) {
	data, err := bson.Marshal(bson.M{"cost": true})
	require.NoError(t, err)

	var out priced
	assert.Error(t, bson.UnmarshalWithRegistry(NewRegistry(), data, &out))
}

func TestBuildIncrementUpdate(t *testing.T) {
	update := BuildIncrementUpdate("quantity", -3)

	assert.Equal(t, bson.M{"quantity": -3}, update["$inc"])
	assert.Contains(t, update, "$set")
}
