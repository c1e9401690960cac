package iface

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorAcceptsPlainSelect(t *testing.T) {
	v := NewValidator(0)
	assert.NoError(t, v.Validate("select id, name from orders where id = ?"))
}

func TestValidatorRejectsNonSelect(t *testing.T) {
	v := NewValidator(0)
	assert.Error(t, v.Validate("delete from orders where id = 1"))
}

func TestValidatorRejectsStackedQuery(t *testing.T) {
	v := NewValidator(0)
	assert.Error(t, v.Validate("select 1; drop table orders"))
}

func TestValidatorRejectsInformationSchemaProbe(t *testing.T) {
	v := NewValidator(0)
	assert.Error(t, v.Validate("select * from information_schema.tables"))
}

func TestValidatorRejectsOverLengthQuery(t *testing.T) {
	v := NewValidator(10)
	assert.Error(t, v.Validate("select id, name, address from customers"))
}
