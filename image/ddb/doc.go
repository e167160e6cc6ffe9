// Package ddb implements image.Catalog on DynamoDB.
//
// DynamoDB conditional writes provide the compare-and-swap that object
// stores lack, so several hosts can publish snapshots of the same device
// without losing an update.
//
// Table schema:
//   - Partition key: device (string)
//   - Sort key: version (number)
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name flashio-catalog \
//	  --attribute-definitions AttributeName=device,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=device,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package ddb
